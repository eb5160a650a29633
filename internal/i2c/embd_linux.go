//go:build linux

package i2c

import (
	_ "github.com/kidoman/embd/host/all"
)
