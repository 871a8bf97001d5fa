// Command hwire fetches URLs over the hwire HTTP/1.1 pipeline and
// compresses data with its Brotli encoder.
package main

import "github.com/corewire/hwire/cmd/hwire/cmd"

func main() {
	cmd.Execute()
}
