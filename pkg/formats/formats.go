// Package formats provides low-level parsers for matchmove scene files:
// Maya ASCII statements, Alembic Ogawa archives and USDA text layers.
//
// The parsers know nothing about cameras or meshes; internal/reader turns
// their output into a scene hierarchy.
package formats
