// Command hostbridge starts, inspects and serves an embedded runtime.
package main

func main() {
	Execute()
}
