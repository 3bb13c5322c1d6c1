// Package logx is a thin structured logging facade over zerolog.
//
// It exists so that components take a small Logger value instead of a
// concrete zerolog.Logger, and so that sinks (console, file) and the
// minimum level can be swapped at runtime via Service.Apply() without
// re-wiring every component.
//
// The zero Logger value is a safe no-op, which keeps optional logging
// dependencies out of constructors.
package logx
