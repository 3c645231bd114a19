package pagevirt_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/djdv/go-pagevirt"
)

var fruit = strings.Fields("apple banana cherry damson elderberry fig grape honeydew")

func fetchFruit(offset, size int) ([]string, error) {
	end := min(offset+size, len(fruit))
	return fruit[offset:end], nil
}

func countFruit() (int, error) { return len(fruit), nil }

func ExampleNewBuilder() {
	const pageSize = 3
	collection, err := pagevirt.NewBuilder[string](pageSize, nil).
		NonPreloading().
		LeastRecentlyUsed(2, 1).
		BlockingFetchers(fetchFruit, countFruit).
		SyncIndexAccess()
	if err != nil {
		panic(err)
	}
	defer collection.Close()
	for _, index := range []int{0, 4, 7} {
		name, err := collection.At(index)
		if err != nil {
			panic(err)
		}
		fmt.Printf("%d: %s\n", index, name)
	}
	// Output:
	// 0: apple
	// 4: elderberry
	// 7: honeydew
}

func ExampleBlockingAccessStage_AsyncIndexAccess() {
	collection, err := pagevirt.NewBuilder[string](4, nil).
		NonPreloading().
		Hoarding().
		BlockingFetchers(fetchFruit, countFruit).
		AsyncIndexAccess(func(int, int) string { return "?" }, nil)
	if err != nil {
		panic(err)
	}
	defer collection.Close()
	const index = 6
	arrived := make(chan string, 1)
	unsubscribe := collection.Subscribe(func(change pagevirt.Change[string]) {
		if change.Kind == pagevirt.ChangeReplace && change.Index == index {
			arrived <- change.Old + " -> " + change.New
		}
	})
	defer unsubscribe()
	if err := collection.WaitReady(context.Background()); err != nil {
		panic(err)
	}
	placeholder, _ := collection.At(index)
	fmt.Println("immediately:", placeholder)
	fmt.Println("replaced:", <-arrived)
	// Output:
	// immediately: ?
	// replaced: ? -> grape
}

func ExampleSlidingWindow() {
	collection, err := pagevirt.NewBuilder[string](2, nil).
		NonPreloading().
		Hoarding().
		BlockingFetchers(fetchFruit, countFruit).
		SyncIndexAccess()
	if err != nil {
		panic(err)
	}
	defer collection.Close()
	window, err := pagevirt.NewSlidingWindow(context.Background(), collection, 0, 3)
	if err != nil {
		panic(err)
	}
	defer window.Close()
	show := func() {
		names := make([]string, window.Size())
		for i := range names {
			names[i], _ = window.At(i)
		}
		fmt.Println(window.Offset(), names)
	}
	show()
	window.SlideRight()
	show()
	window.JumpTo(100)
	show()
	// Output:
	// 0 [apple banana cherry]
	// 1 [banana cherry damson]
	// 5 [fig grape honeydew]
}
