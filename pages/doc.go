// Package pages flattens the PDF page tree.
//
//	tree := pages.NewPageTree(pagesDict, resolver)
//	all, err := tree.Pages()   // leaf pages in document order
//	res, err := all[0].Resources()
//
// Intermediate /Pages nodes may carry a /Resources dictionary that their
// descendants inherit; [Page.Resources] returns the nearest one. A node
// that appears twice in the tree makes the traversal fail instead of
// looping.
package pages
