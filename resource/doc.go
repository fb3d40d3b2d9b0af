// Package resource tracks the strong references a managed runtime hands out.
//
// Every strong reference taken on a guest object gets an entry in a Table.
// Releasing the reference removes the entry, which calls Drop on the stored
// value; closing the Table drops whatever is left, so a runtime that shuts
// down never leaks instances.
//
//	table := resource.NewTable()
//
//	handle, err := table.Insert("protector", obj)
//	value, ok := table.Get(handle)
//	value, ok = table.Remove(handle) // obj.Drop() runs here
//
// # Observers
//
// Observers see every creation and drop, which is how tests verify that a
// replaced protector was actually released:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    if e.Type == resource.EventDropped {
//	        log.Printf("%s %d dropped", e.Class, e.Handle)
//	    }
//	}))
//
// Observers run without table locks held and may call back into the Table.
package resource
