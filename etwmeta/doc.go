// Package etwmeta extracts instrumentation metadata of trace providers and
// normalizes it into a single model.
//
// Two sources are supported: XML instrumentation manifests, parsed by
// ParseManifest, and legacy class based providers described by a hierarchy of
// meta-classes with qualifiers, walked by ParseLegacy through a ClassQuery.
// Both produce a *Manifest holding the provider identity, its string table,
// events, keywords, tasks and templates. The package does no I/O.
//
// Basic usage:
//
//	m, err := etwmeta.ParseManifest(xmlText)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range m.Events {
//	    fmt.Println(e.ID, e.Symbol, m.Fields(e))
//	}
//
// Legacy providers:
//
//	repo, _ := mof.LoadFiles("WindowsKernelTrace.mof")
//	m, err := etwmeta.ParseLegacy(guid, repo)
//	if errors.Is(err, etwmeta.ErrProviderNotFound) {
//	    // not a legacy provider
//	}
package etwmeta
