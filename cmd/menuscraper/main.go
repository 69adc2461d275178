// The main package for the menuscraper executable.
package main

import (
	"github.com/JakeFAU/menu-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
