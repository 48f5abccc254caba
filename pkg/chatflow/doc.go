// Package chatflow defines the public contracts of the chat client data layer:
// the interaction model, paging and store collaborators, module lifecycle, the
// service registry, and shared sentinel errors.
//
// Stores are consumed through narrow interfaces so persistence can be swapped
// without touching caches, hubs, or streams.
package chatflow
