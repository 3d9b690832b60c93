// The main package for the querium-crawler executable.
package main

import (
	"github.com/JakeFAU/querium-crawler/cmd"
)

func main() {
	cmd.Execute()
}
