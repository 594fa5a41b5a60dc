// Package artifact names and manages the staging files that live in a
// session's scratch namespace. Each artifact has a kind and a deterministic
// name derived from its group id, which is the only collision guard between
// pipeline runs sharing the namespace.
package artifact

import (
	"fmt"
	"path/filepath"

	"github.com/kingrea/diagindex/internal/groups"
)

// Kind captures what produced an artifact and how long it lives.
type Kind string

const (
	// KindStripped is a member copy with every point-data array removed.
	KindStripped Kind = "stripped"
	// KindFileList is the model builder's plain-text input list.
	KindFileList Kind = "file-list"
	// KindModel is the intermediate statistical model.
	KindModel Kind = "model"
	// KindSample is a fixed-name file written by the sampling tool.
	KindSample Kind = "sample"
	// KindMean is a group's retained mean shape.
	KindMean Kind = "mean"
	// KindDecorated is a preview copy tagged with its group id.
	KindDecorated Kind = "decorated"
	// KindManifest is the preview manifest handed to a viewer.
	KindManifest Kind = "manifest"
)

const previewDir = "preview"

// Ref identifies one artifact inside a namespace.
type Ref struct {
	Kind  Kind
	Group groups.GroupID
	Name  string
}

// Path resolves the artifact path inside the namespace.
func (r Ref) Path(ns *Namespace) string {
	if ns == nil || r.Name == "" {
		return ""
	}
	return filepath.Join(ns.root, filepath.FromSlash(r.Name))
}

// Transient reports whether the artifact must be gone once its run ends.
func (r Ref) Transient() bool {
	switch r.Kind {
	case KindMean, KindDecorated, KindManifest:
		return false
	default:
		return true
	}
}

// StrippedCopy names the n-th stripped member of a group.
func StrippedCopy(id groups.GroupID, n int, source string) Ref {
	return Ref{Kind: KindStripped, Group: id, Name: fmt.Sprintf("group%d_%d_%s", id, n, filepath.Base(source))}
}

// FileList names a group's model-builder input list.
func FileList(id groups.GroupID) Ref {
	return Ref{Kind: KindFileList, Group: id, Name: fmt.Sprintf("group%d.txt", id)}
}

// Model names a group's intermediate model.
func (n *Namespace) Model(id groups.GroupID) Ref {
	return Ref{Kind: KindModel, Group: id, Name: fmt.Sprintf("group%d%s", id, n.modelExt)}
}

// Sample names a fixed-name sampling output. It carries no group.
func Sample(name string) Ref {
	return Ref{Kind: KindSample, Name: filepath.Base(name)}
}

// Mean names a group's retained mean shape.
func Mean(id groups.GroupID) Ref {
	return Ref{Kind: KindMean, Group: id, Name: fmt.Sprintf("meanGroup%d.vtk", id)}
}

// Decorated names the preview copy of source, keyed by its file name.
func Decorated(source string) Ref {
	return Ref{Kind: KindDecorated, Name: previewDir + "/" + filepath.Base(source)}
}

// PreviewManifest names the preview manifest.
func PreviewManifest() Ref {
	return Ref{Kind: KindManifest, Name: previewDir + "/manifest.csv"}
}
