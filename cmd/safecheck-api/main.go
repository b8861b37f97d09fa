package main

import "context"

func main() {
	app := mustBootstrapSafeCheckAPI()
	defer app.Close()

	if err := app.Run(); err != nil && err != context.Canceled {
		panic(err)
	}
}
