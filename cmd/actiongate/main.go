// actiongate decides whether actions proposed by autonomous engines may
// execute on their own, need approval, go to a human, or are rejected.
package main

import "github.com/ppiankov/actiongate/internal/cli"

func main() {
	cli.Execute()
}
