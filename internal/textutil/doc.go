// Package textutil provides text helpers shared by planning and assembly:
// word counting that treats CJK characters as words, caption line wrapping,
// rune-safe clipping, and filename sanitization.
package textutil
