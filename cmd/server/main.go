package main

import (
	"os"

	"ai-note/backend/internal/app"
)

func main() {
	os.Exit(app.Run())
}
