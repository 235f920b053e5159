// Package common contains small helpers shared by the other packages.
package common

import (
	"github.com/mcnijman/go-emailaddress"
)

// ValidateEmailAddress returns an error if the format of an email address is invalid.
func ValidateEmailAddress(emailAddress string) error {
	_, err := emailaddress.Parse(emailAddress)
	return err
}
