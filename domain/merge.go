package domain

import "dario.cat/mergo"

// mergeRevision overlays src onto dst in place: any non-zero src field
// replaces the matching dst field, zero/nil fields leave dst untouched.
func mergeRevision(dst *Revision, src Revision) error {
	return mergo.Merge(dst, src, mergo.WithOverride)
}

// mergePipeline is mergeRevision's counterpart for Pipeline rows.
func mergePipeline(dst *Pipeline, src Pipeline) error {
	return mergo.Merge(dst, src, mergo.WithOverride)
}
