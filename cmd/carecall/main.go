package main

import (
	"github.com/Leontarin/CareBell-sub000/internal/cli"
	"github.com/Leontarin/CareBell-sub000/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cli.Execute()
}
