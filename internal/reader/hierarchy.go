package reader

import (
	"fmt"

	"github.com/Faultbox/a2j/pkg/math"
)

// hierarchy holds the flattened object tree of one source file. Every
// concrete reader embeds it; the lists are built once when the file is opened.
type hierarchy struct {
	objects    []*Object
	cameras    []*Object
	meshes     []*Object
	transforms []*Object
	parents    map[string]*Object
	byPath     map[string]*Object
}

func newHierarchy(roots []*Object) *hierarchy {
	h := &hierarchy{
		parents: map[string]*Object{},
		byPath:  map[string]*Object{},
	}
	var walk func(o *Object)
	walk = func(o *Object) {
		h.objects = append(h.objects, o)
		h.byPath[o.Path] = o
		switch o.Kind {
		case KindCamera:
			h.cameras = append(h.cameras, o)
		case KindMesh:
			h.meshes = append(h.meshes, o)
		case KindTransform:
			h.transforms = append(h.transforms, o)
		}
		if o.Parent != nil {
			h.parents[o.Name] = o.Parent
		}
		for _, c := range o.Children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return h
}

func (h *hierarchy) AllObjects() []*Object { return h.objects }
func (h *hierarchy) Cameras() []*Object    { return h.cameras }
func (h *hierarchy) Meshes() []*Object     { return h.meshes }
func (h *hierarchy) Transforms() []*Object { return h.transforms }

// ParentMap maps child names to parents. A later object with a colliding
// name overwrites an earlier one.
func (h *hierarchy) ParentMap() map[string]*Object { return h.parents }

// ObjectByPath returns the object at a slash separated path, or nil.
func (h *hierarchy) ObjectByPath(path string) *Object { return h.byPath[path] }

// addChild links child under parent and fills in its path.
func addChild(parent, child *Object) {
	child.Parent = parent
	if parent == nil {
		child.Path = "/" + child.Name
		return
	}
	child.Path = parent.Path + "/" + child.Name
	parent.Children = append(parent.Children, child)
}

// worldMatrix accumulates local matrices from obj up to the root. With row
// vectors this is local(obj) * local(parent) * ... * local(root), which applies
// the root transform last.
func worldMatrix(obj *Object, local func(*Object) (math.Mat4, error)) (math.Mat4, error) {
	m := math.Identity()
	for o := obj; o != nil; o = o.Parent {
		l, err := local(o)
		if err != nil {
			return math.Mat4{}, fmt.Errorf("local matrix of %s: %w", o.Path, err)
		}
		m = m.Mul(l)
	}
	return m, nil
}

// checkObject rejects objects that do not belong to h.
func (h *hierarchy) checkObject(obj *Object) error {
	if obj == nil || h.byPath[obj.Path] != obj {
		name := "<nil>"
		if obj != nil {
			name = obj.Path
		}
		return fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	return nil
}
