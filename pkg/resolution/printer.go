package resolution

import (
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
)

// Printer renders a resolution as text, one line per mapped element:
//
//	Customer -> Customer@revision 1
//	 name -> fullName@Customer@revision 1
//	Status -> Status
//	 ACTIVE -> ACTIVE
//	get -> get
//
// Types come first, sorted by consumer name, then operations sorted by
// name. Elements whose public and internal names differ print as
// public(internal).
type Printer struct{}

// Print renders the resolution
func (p Printer) Print(r *DefinitionResolution) string {
	var sb strings.Builder

	types := append([]apimodel.UserDefinedType(nil), r.consumer.Types()...)
	sort.SliceStable(types, func(i, j int) bool {
		return types[i].PublicName() < types[j].PublicName()
	})

	for _, ct := range types {
		image, ok := r.MapType(ct)
		if !ok {
			continue
		}

		switch t := ct.(type) {
		case *apimodel.RecordType:
			fmt.Fprintf(&sb, "%s -> %s@%s\n", displayName(t.PublicName(), t.InternalName()), image.InternalName(), p.revisionOf(r, image))
			for _, cf := range t.AllFields() {
				pf, ok := r.MapField(cf)
				if !ok {
					continue
				}
				fmt.Fprintf(&sb, " %s -> %s@%s@%s\n",
					displayName(cf.PublicName(), cf.InternalName()), pf.InternalName(), pf.Owner().InternalName(), p.revisionOf(r, pf))
			}

		case *apimodel.EnumType:
			fmt.Fprintf(&sb, "%s -> %s\n", displayName(t.PublicName(), t.InternalName()), image.InternalName())
			for _, cm := range t.Members() {
				if pm, ok := r.MapMember(cm); ok {
					fmt.Fprintf(&sb, " %s -> %s\n", displayName(cm.PublicName(), cm.InternalName()), pm.InternalName())
				}
			}
		}
	}

	ops := append([]*apimodel.Operation(nil), r.consumer.Operations()...)
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].PublicName() < ops[j].PublicName()
	})
	for _, op := range ops {
		if image, ok := r.MapOperation(op); ok {
			fmt.Fprintf(&sb, "%s -> %s\n",
				displayName(op.PublicName(), op.InternalName()), displayName(image.PublicName(), image.InternalName()))
		}
	}

	return sb.String()
}

func (p Printer) revisionOf(r *DefinitionResolution, element any) string {
	rev, _ := r.merged.RevisionOf(element)
	return fmt.Sprintf("revision %d", rev)
}

func displayName(public, internal string) string {
	if public == internal {
		return public
	}
	return public + "(" + internal + ")"
}
