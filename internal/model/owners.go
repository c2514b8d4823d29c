package model

import "slices"

// ownerKey identifies one (node, attribute) pair that holds a container.
type ownerKey struct {
	node *Node
	attr string
}

// owners is an insertion-ordered set of owner keys. A container may be
// shared by several attributes at once; every owner is notified on mutation.
type owners struct {
	keys []ownerKey
}

func (o *owners) register(node *Node, attr string) {
	k := ownerKey{node, attr}
	for _, existing := range o.keys {
		if existing == k {
			return
		}
	}
	o.keys = append(o.keys, k)
}

func (o *owners) unregister(node *Node, attr string) {
	k := ownerKey{node, attr}
	for i, existing := range o.keys {
		if existing == k {
			o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
			return
		}
	}
}

// Owned reports how many (node, attribute) pairs currently hold the container.
func (o *owners) Owned() int {
	return len(o.keys)
}

// notify fans out a mutation to every owner. Owners are snapshotted first
// so callbacks that re-assign attributes cannot disturb the iteration.
//
// contents is the container after the mutation. restore puts the previous
// contents back and returns the rejected ones. When the mutation would
// leave a node reachable from two documents it is restored before any
// owner hears of it. If an owner still rejects it, the owners that already
// accepted it are notified of the restore so their documents follow.
func (o *owners) notify(old Value, h Hint, origin Origin, contents Value, restore func() Value) error {
	if err := o.checkOwnership(contents); err != nil {
		restore()
		return err
	}
	keys := append([]ownerKey(nil), o.keys...)
	for i, k := range keys {
		if err := k.node.notifyMutated(k.attr, old, h, origin); err != nil {
			rejected := restore()
			for _, done := range keys[:i] {
				_ = done.node.notifyMutated(done.attr, rejected, nil, origin)
			}
			return err
		}
	}
	return nil
}

// checkOwnership rejects contents holding a node that is owned by one
// document while an owner of the container lives in another. Two owning
// documents can never share a node, so a container held from both may
// not reference any.
func (o *owners) checkOwnership(contents Value) error {
	var docs []Document
	for _, k := range o.keys {
		if d := k.node.doc; d != nil && !slices.Contains(docs, d) {
			docs = append(docs, d)
		}
	}
	if len(docs) == 0 {
		return nil
	}
	for _, n := range CollectNodes(contents) {
		owner := n.doc
		if owner == nil {
			owner = docs[0]
		}
		for _, d := range docs {
			if d != owner {
				return NewOwnershipError(n.id, d.ID(), owner.ID())
			}
		}
	}
	return nil
}

// Container is implemented by the mutation-notifying containers.
type Container interface {
	Value
	// Snapshot returns a shallow, non-notifying copy of the current state.
	Snapshot() Value
	// Owned reports how many (node, attribute) pairs hold the container.
	Owned() int

	register(node *Node, attr string)
	unregister(node *Node, attr string)
}

// baseContainer carries the owner bookkeeping shared by every container.
// Concrete containers must provide Snapshot themselves.
type baseContainer struct {
	owners
}

// Snapshot is a contract placeholder: every concrete container overrides it.
func (b *baseContainer) Snapshot() Value {
	panic("model: container does not implement Snapshot")
}
