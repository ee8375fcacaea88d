// Command compiledb drives the compiled relational engine from the
// shell: create tables, insert rows, scan and filter them, manage
// indices, and delete rows, all backed by natively compiled page and
// index shared objects.
package main

func main() {
	Execute()
}
