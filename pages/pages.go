package pages

import (
	"fmt"

	"github.com/tsawler/pdfpatch/core"
)

// ObjectResolver resolves indirect references
type ObjectResolver interface {
	Resolve(obj core.Object) (core.Object, error)
}

// Catalog is the document catalog (root of document structure)
type Catalog struct {
	dict     core.Dict
	resolver ObjectResolver
}

// NewCatalog wraps a catalog dictionary
func NewCatalog(dict core.Dict, resolver ObjectResolver) *Catalog {
	return &Catalog{dict: dict, resolver: resolver}
}

// Pages returns the root of the page tree
func (c *Catalog) Pages() (core.Dict, error) {
	pagesRef := c.dict.Get("Pages")
	if pagesRef == nil {
		return nil, fmt.Errorf("catalog missing /Pages entry")
	}
	pagesObj, err := c.resolver.Resolve(pagesRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Pages: %w", err)
	}
	pagesDict, ok := pagesObj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("invalid /Pages type: %T", pagesObj)
	}
	return pagesDict, nil
}

// PageTree flattens the page tree into document order
type PageTree struct {
	root     core.Dict
	resolver ObjectResolver
	pages    []*Page
}

// NewPageTree returns the tree rooted at the given /Pages dictionary
func NewPageTree(root core.Dict, resolver ObjectResolver) *PageTree {
	return &PageTree{root: root, resolver: resolver}
}

// Count returns the number of leaf pages. The /Count entries of the tree
// are not trusted.
func (t *PageTree) Count() (int, error) {
	pages, err := t.Pages()
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

// GetPage returns the page at the given index (0-based)
func (t *PageTree) GetPage(index int) (*Page, error) {
	pages, err := t.Pages()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(pages) {
		return nil, fmt.Errorf("page index %d out of range [0, %d)", index, len(pages))
	}
	return pages[index], nil
}

// Pages returns all pages in document order
func (t *PageTree) Pages() ([]*Page, error) {
	if t.pages != nil {
		return t.pages, nil
	}
	var pages []*Page
	w := walker{resolver: t.resolver, visited: make(map[int]bool)}
	if err := w.visit(t.root, core.IndirectRef{}, nil, &pages); err != nil {
		return nil, fmt.Errorf("failed to traverse page tree: %w", err)
	}
	t.pages = pages
	return pages, nil
}

type walker struct {
	resolver ObjectResolver
	visited  map[int]bool
}

// visit walks one node. ref is the reference the node was reached
// through, or the zero value for the root. inherited is the nearest
// ancestor's /Resources entry.
func (w *walker) visit(node core.Dict, ref core.IndirectRef, inherited core.Object, out *[]*Page) error {
	if res := node.Get("Resources"); res != nil {
		inherited = res
	}

	typ, _ := node.GetName("Type")
	if typ == "Page" || (typ == "" && !node.Has("Kids")) {
		*out = append(*out, &Page{index: len(*out), ref: ref, dict: node, inherited: inherited, resolver: w.resolver})
		return nil
	}

	kidsObj, err := w.resolver.Resolve(node.Get("Kids"))
	if err != nil {
		return fmt.Errorf("failed to resolve /Kids: %w", err)
	}
	kids, ok := kidsObj.(core.Array)
	if !ok {
		return fmt.Errorf("invalid /Kids type: %T", kidsObj)
	}
	for i, kid := range kids {
		kidRef, _ := kid.(core.IndirectRef)
		if kidRef.Number != 0 {
			if w.visited[kidRef.Number] {
				return fmt.Errorf("page tree node %d visited twice", kidRef.Number)
			}
			w.visited[kidRef.Number] = true
		}
		kidObj, err := w.resolver.Resolve(kid)
		if err != nil {
			return fmt.Errorf("failed to resolve kid %d: %w", i, err)
		}
		kidDict, ok := kidObj.(core.Dict)
		if !ok {
			return fmt.Errorf("invalid kid type: %T", kidObj)
		}
		if err := w.visit(kidDict, kidRef, inherited, out); err != nil {
			return err
		}
	}
	return nil
}

// Page is a leaf of the page tree
type Page struct {
	index     int
	ref       core.IndirectRef
	dict      core.Dict
	inherited core.Object
	resolver  ObjectResolver
}

// NewPage wraps a page dictionary. inherited is the /Resources entry of
// the nearest ancestor that has one, or nil.
func NewPage(dict core.Dict, inherited core.Object, resolver ObjectResolver) *Page {
	return &Page{dict: dict, inherited: inherited, resolver: resolver}
}

// Index returns the 0-based position of the page in the document.
func (p *Page) Index() int { return p.index }

// Ref returns the reference of the page object. It is the zero value for
// a page that was not reached through a reference.
func (p *Page) Ref() core.IndirectRef { return p.ref }

// Dict returns the page dictionary.
func (p *Page) Dict() core.Dict { return p.dict }

// Resources returns the resource dictionary, which may be inherited.
func (p *Page) Resources() (core.Dict, error) {
	resourcesObj := p.dict.Get("Resources")
	if resourcesObj == nil {
		resourcesObj = p.inherited
	}
	if resourcesObj == nil {
		return nil, fmt.Errorf("resources not found")
	}

	resolved, err := p.resolver.Resolve(resourcesObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Resources: %w", err)
	}
	resourcesDict, ok := resolved.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("invalid Resources type: %T", resolved)
	}
	return resourcesDict, nil
}
