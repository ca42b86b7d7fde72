package main

import (
	"os"

	"github.com/llehouerou/wavebot/internal/app"
)

func main() {
	os.Exit(app.Execute())
}
