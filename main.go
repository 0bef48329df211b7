// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// vescstat - VESC / DieBieMS UART protocol tool
//
// A CLI tool for polling, commanding and sniffing VESC motor controllers
// and DieBieMS battery-management units.

package main

import (
	"os"

	"github.com/Thermoquad/vescstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
