// Command tcgeval is the flat evaluation API's example harness: it owns
// flag parsing and terminal I/O only, never touching pkg/core directly.
// It runs against the in-memory fake transport pkg/drive ships for tests,
// not a real device (device-node opening and ioctl dispatch are out of
// scope for this driver) — every subcommand maps to one or two Evaluator
// calls and prints the RawResult.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/sedctl/tcgcore/pkg/cmdutil"
	"github.com/sedctl/tcgcore/pkg/core/table"
	"github.com/sedctl/tcgcore/pkg/core/uid"
	"github.com/sedctl/tcgcore/pkg/drive"
	"github.com/sedctl/tcgcore/pkg/eval"
)

type discoverCmd struct{}

type statusCmd struct {
	User string `optional:"" short:"u" default:"sid" enum:"sid,admin1" help:"Authority to authenticate as before listing ranges"`
	cmdutil.PasswordEmbed
}

type unlockCmd struct {
	Range int `arg:"" help:"Locking range index (0 is the Global Range)"`
	cmdutil.PasswordEmbed
}

type lockCmd struct {
	Range int `arg:"" help:"Locking range index (0 is the Global Range)"`
	cmdutil.PasswordEmbed
}

var cli struct {
	SSC      string      `optional:"" default:"opal2" enum:"opal2,enterprise" help:"Which SSC the simulated TPer advertises"`
	Discover discoverCmd `cmd:"" help:"Run Level 0 Discovery and print the elected SSC"`
	Status   statusCmd   `cmd:"" help:"List locking ranges"`
	Unlock   unlockCmd   `cmd:"" help:"Unlock a locking range for read and write"`
	Lock     lockCmd     `cmd:"" help:"Lock a locking range for read and write"`
}

type context struct {
	e *eval.Evaluator
	d drive.DriveIntf
}

func rangeRow(n int) uid.RowUID {
	if n == 0 {
		return uid.GlobalRangeRowUID
	}
	return uid.LockingRangeN(uint32(n))
}

func (discoverCmd) Run(ctx *context) error {
	res := ctx.e.Discovery()
	if !res.OK() {
		return fmt.Errorf("discovery failed: %v", res.Err)
	}
	fmt.Printf("%+v\n", res.Value)
	return nil
}

func authenticate(ctx *context, user string, pw cmdutil.PasswordEmbed) error {
	hashBytes, err := pw.GenerateHash(ctx.d)
	if err != nil {
		return fmt.Errorf("hash password: %v", err)
	}
	spid := uid.LockingSP
	if user == "sid" {
		spid = uid.AdminSP
	}
	if res := ctx.e.StartSession(spid, false); !res.OK() {
		return fmt.Errorf("start session: %v", res.Err)
	}
	authority := uid.LockingAuthorityAdmin1
	if user == "sid" {
		authority = uid.AuthoritySID
	}
	if res := ctx.e.Authenticate(authority, hashBytes); !res.OK() {
		return fmt.Errorf("authenticate: %v", res.Err)
	}
	return nil
}

func (s statusCmd) Run(ctx *context) error {
	if err := authenticate(ctx, s.User, s.PasswordEmbed); err != nil {
		return err
	}
	res := ctx.e.LockingRanges()
	if !res.OK() {
		return fmt.Errorf("enumerate locking ranges: %v", res.Err)
	}
	rows, _ := res.Value.([]uid.RowUID)
	for i, row := range rows {
		r := ctx.e.LockingRange(row)
		if !r.OK() {
			fmt.Printf("range %d: error: %v\n", i, r.Err)
			continue
		}
		fmt.Printf("range %d: %+v\n", i, r.Value)
	}
	return nil
}

func setRangeLock(ctx *context, n int, locked bool) error {
	f := locked
	row := &table.LockingRow{UID: rangeRow(n), ReadLocked: &f, WriteLocked: &f}
	if res := ctx.e.SetLockingRange(row); !res.OK() {
		return res.Err
	}
	return nil
}

func (u unlockCmd) Run(ctx *context) error {
	if err := authenticate(ctx, "admin1", u.PasswordEmbed); err != nil {
		return err
	}
	if err := setRangeLock(ctx, u.Range, false); err != nil {
		return fmt.Errorf("unlock range %d: %v", u.Range, err)
	}
	fmt.Printf("range %d unlocked\n", u.Range)
	return nil
}

func (l lockCmd) Run(ctx *context) error {
	if err := authenticate(ctx, "admin1", l.PasswordEmbed); err != nil {
		return err
	}
	if err := setRangeLock(ctx, l.Range, true); err != nil {
		return fmt.Errorf("lock range %d: %v", l.Range, err)
	}
	fmt.Printf("range %d locked\n", l.Range)
	return nil
}

func main() {
	k := kong.Parse(&cli,
		kong.Resolvers(cmdutil.ResolvePassword(false)),
	)

	d := newSimulatedDrive(cli.SSC)

	e, res := eval.Open(d)
	if !res.OK() {
		fmt.Fprintf(os.Stderr, "eval.Open: %v\n", res.Err)
		os.Exit(1)
	}
	defer e.Close()

	k.FatalIfErrorf(k.Run(&context{e: e, d: d}))
}
