package util

import (
	"errors"
	"fmt"
)

// FormatErrorList() condenses a list of errors into one error with one
// indexed line per entry. Returns nil for an empty list.
func FormatErrorList(errList []error) error {
	if !HasErrors(errList) {
		return nil
	}
	var errmsg string
	for i, e := range errList {
		errmsg += fmt.Sprintf("\t[%d] %v\n", i, e)
	}
	return errors.New(errmsg)
}

func HasErrors(errList []error) bool {
	return len(errList) > 0
}
