package main

import (
	"strings"
	"testing"

	"github.com/san-kum/twinkit/internal/twin"
)

func TestValidateOutputName(t *testing.T) {
	outputs := []twin.Variable{
		{Name: "temperature"},
		{Name: "pressure"},
	}

	if err := validateOutputName(outputs, "temperature"); err != nil {
		t.Errorf("declared output rejected: %v", err)
	}

	err := validateOutputName(outputs, "temperatur")
	if err == nil {
		t.Fatal("mistyped output accepted")
	}
	if !strings.Contains(err.Error(), "temperatur") || !strings.Contains(err.Error(), "pressure") {
		t.Errorf("error %q should name the bad input and the declared outputs", err)
	}
}
