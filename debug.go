//go:build pagevirt_debug

package pagevirt

const debugging = true

func assert(cond bool, message string) {
	if !cond {
		panic(message)
	}
}
