package cmdutil

import (
	"fmt"

	"github.com/sedctl/tcgcore/pkg/drive"
	"github.com/sedctl/tcgcore/pkg/eval"
)

type PasswordEmbed struct {
	Password string `required:"" env:"PASS" help:"Authentication password"`
	Hash     string `optional:"" env:"HASH" default:"dta" enum:"sedutil-dta,sedutil-512,dta,sha1,sha512" help:"Use dta (sha1) or sha512 for password hashing"`
}

// GenerateHash derives the credential bytes for t.Password, salted with d's
// serial number, via the Evaluator's HashPassword operation.
func (t *PasswordEmbed) GenerateHash(d drive.DriveIntf) ([]byte, error) {
	serial, err := d.SerialNumber()
	if err != nil {
		return nil, fmt.Errorf("d.SerialNumber() failed: %v", err)
	}

	variant := t.Hash
	switch variant {
	case "sha1", "dta":
		variant = "sedutil-dta"
	case "sha512":
		variant = "sedutil-512"
	}

	e := &eval.Evaluator{}
	res := e.HashPassword(t.Password, string(serial), variant)
	if !res.OK() {
		return nil, res.Err
	}
	return res.Value.([]byte), nil
}
