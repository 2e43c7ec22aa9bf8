package dockbox

// Label keys stamped on every image dockbox builds. They are the only record of
// which images dockbox owns, there is no state file.
const (
	LabelPrefix = "io.dockbox."

	// LabelManagedBy marks dockbox images, value is always ManagedByValue
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelName is the manifest name of the packaged project
	LabelName = LabelPrefix + "name"

	// LabelEntrypoint is the executable the image runs
	LabelEntrypoint = LabelPrefix + "entrypoint"

	// LabelSourceDigest is the content digest of the source tree baked into the image
	LabelSourceDigest = LabelPrefix + "source-digest"

	// LabelWorkdir is the run-time working directory inside the container
	LabelWorkdir = LabelPrefix + "workdir"

	// LabelWorkspace is set on containers to the host working directory they mount
	LabelWorkspace = LabelPrefix + "workspace"
)

// ManagedByValue is the value of LabelManagedBy
const ManagedByValue = "dockbox"

// ManagedFilter is the docker label filter selecting dockbox images
const ManagedFilter = LabelManagedBy + "=" + ManagedByValue

// ImageLabels returns the labels of the image built for m from a tree with the given digest
func ImageLabels(m *Manifest, sourceDigest string) map[string]string {
	return map[string]string{
		LabelManagedBy:    ManagedByValue,
		LabelName:         m.Name,
		LabelEntrypoint:   m.Entrypoint,
		LabelSourceDigest: sourceDigest,
		LabelWorkdir:      m.Workdir,
	}
}

// IsManaged reports whether labels mark a dockbox image
func IsManaged(labels map[string]string) bool {
	return labels[LabelManagedBy] == ManagedByValue
}
