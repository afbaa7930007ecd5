// Package shader holds compiled shader modules: an opaque blob plus the
// reflection metadata pipeline layouts use to pin descriptor bindings to
// native register slots.
//
// Shader cross-compilation is outside this module. CompileWGSL and
// TranslateHLSL are thin helpers over gogpu/naga for hosts that start
// from WGSL source or a naga IR module.
package shader
