//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds the a2j binary into bin/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/a2j", "./cmd/a2j"), withStream()); err != nil {
		return err
	}
	fmt.Println("Built bin/a2j")
	return nil
}

// Runs go mod download and then installs the binary.
func (Build) Install() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("install", "./cmd/a2j"), withStream()); err != nil {
		return err
	}
	return nil
}
