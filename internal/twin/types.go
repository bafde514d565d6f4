package twin

import "sort"

// VarType is the declared data type of a model variable.
type VarType string

const (
	TypeReal    VarType = "real"
	TypeInteger VarType = "integer"
	TypeBoolean VarType = "boolean"
)

// Variable describes one declared input, output, or parameter of a
// packaged model. Descriptors are read once at load time and never
// change afterward.
type Variable struct {
	Name        string
	Type        VarType
	Unit        string
	Description string
	Nominal     float64
	Min         float64
	Max         float64
	Start       float64
}

// Values maps variable names to scalar values.
type Values map[string]float64

// Clone returns an independent copy of v. Cloning nil returns nil.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	c := make(Values, len(v))
	for k, val := range v {
		c[k] = val
	}
	return c
}

// Names returns the keys of v in sorted order.
func (v Values) Names() []string {
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// VarNames returns the names of vars in declaration order.
func VarNames(vars []Variable) []string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	return names
}

// FindVar returns the descriptor with the given name, if declared.
func FindVar(vars []Variable, name string) (Variable, bool) {
	for _, v := range vars {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// StartValues returns the declared start value of every variable in vars.
func StartValues(vars []Variable) Values {
	vals := make(Values, len(vars))
	for _, v := range vars {
		vals[v.Name] = v.Start
	}
	return vals
}
