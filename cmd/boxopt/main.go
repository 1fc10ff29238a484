// Command boxopt runs optimization tasks from the command line.
package main

func main() {
	Execute()
}
