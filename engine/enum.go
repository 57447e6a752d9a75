package engine

import "fmt"

// Choices supplies the ordered string table backing an Enum.
//
// This mirrors the small-int-plus-string-table idiom the local backend
// uses for its time-type option: a zero-size marker type whose method
// set provides the names, and a generic integer wrapper for the value.
type Choices interface {
	Choices() []string
}

// Enum is a generic integer-backed enum whose names come from C.
type Enum[C Choices] int

// String returns the name of the Enum value.
func (e Enum[C]) String() string {
	var c C
	choices := c.Choices()
	if int(e) < 0 || int(e) >= len(choices) {
		return fmt.Sprintf("Enum(%d)", int(e))
	}
	return choices[e]
}

// Set sets the Enum from its name, for use as a pflag.Value.
func (e *Enum[C]) Set(s string) error {
	var c C
	for i, choice := range c.Choices() {
		if choice == s {
			*e = Enum[C](i)
			return nil
		}
	}
	return fmt.Errorf("invalid value %q: valid values are %v", s, c.Choices())
}

// Type implements pflag.Value.
func (e Enum[C]) Type() string {
	return "string"
}
