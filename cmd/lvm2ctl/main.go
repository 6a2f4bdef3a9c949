package main

import "github.com/lvm2go/lvm2core/cmd/lvm2ctl/app"

func main() {
	app.Execute()
}
