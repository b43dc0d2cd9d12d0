// Command importctl runs employee imports and maintenance tasks from the
// command line.
package main

func main() {
	Execute()
}
