// Command evtxcli is a thin front-end over the evtx package's public
// stream API (§6 of the design notes: CLI front-ends are an external
// collaborator, not part of the core).
package main

func main() {
	execute()
}
