package main

import (
	"fmt"

	"github.com/ternarybob/stayreel/internal/common"
)

func runVersion(args []string) int {
	common.LoadVersionFromFile()
	fmt.Printf("StayReel version %s\n", common.GetFullVersion())
	return 0
}
