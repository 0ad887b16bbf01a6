//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Check mg.Namespace

// Runs the unit tests with the race detector.
func (Check) Test() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}

// Runs go vet and fails on unformatted files.
func (Check) Lint() error {
	if _, err := executeCmd("go", withArgs("vet", "./..."), withStream()); err != nil {
		return err
	}
	out, err := executeCmd("gofmt", withArgs("-l", "cmd", "internal", "pkg"))
	if err != nil {
		return err
	}
	if out != "" {
		return errUnformatted(out)
	}
	return nil
}

// Runs Lint then Test.
func (Check) All() {
	mg.SerialDeps(Check.Lint, Check.Test)
}
