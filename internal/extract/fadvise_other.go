//go:build !linux

package extract

import "os"

func dropPageCache(*os.File) {}
