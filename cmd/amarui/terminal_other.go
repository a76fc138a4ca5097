//go:build !linux

package main

import "errors"

func isTerminal(int) bool { return false }

func makeRaw(int) (func(), error) {
	return nil, errors.New("raw terminal input is only supported on linux")
}
