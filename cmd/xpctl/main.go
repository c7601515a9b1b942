package main

import "activity-xp/cmd/xpctl/root"

func main() {
	root.Execute()
}
