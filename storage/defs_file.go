package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pallas-trace/pallas/archive"
	"github.com/pallas-trace/pallas/errs"
)

// writeGlobalDefs serializes ga's seven global definition tables to
// string.dat, regions.dat, attributes.dat, groups.dat, comms.dat,
// location_groups.dat, and locations.dat under dir.
func writeGlobalDefs(ga *archive.GlobalArchive, dir string) error {
	if err := writeStrings(globalDefFilePath(dir, "string.dat"), ga.Strings()); err != nil {
		return err
	}
	if err := writeRegions(globalDefFilePath(dir, "regions.dat"), ga.Regions()); err != nil {
		return err
	}
	if err := writeAttributes(globalDefFilePath(dir, "attributes.dat"), ga.Attributes()); err != nil {
		return err
	}
	if err := writeGroups(globalDefFilePath(dir, "groups.dat"), ga.Groups()); err != nil {
		return err
	}
	if err := writeComms(globalDefFilePath(dir, "comms.dat"), ga.Comms()); err != nil {
		return err
	}
	if err := writeLocationGroups(globalDefFilePath(dir, "location_groups.dat"), ga.LocationGroups()); err != nil {
		return err
	}

	return writeLocations(globalDefFilePath(dir, "locations.dat"), ga.Locations())
}

// readGlobalDefs reopens dir's global definition files into a fresh
// GlobalArchive.
func readGlobalDefs(ga *archive.GlobalArchive, dir string) error {
	strs, err := readStrings(globalDefFilePath(dir, "string.dat"))
	if err != nil {
		return err
	}
	for _, s := range strs {
		if err := ga.AddString(s.Ref, s.Value); err != nil {
			return err
		}
	}

	regions, err := readRegions(globalDefFilePath(dir, "regions.dat"))
	if err != nil {
		return err
	}
	for _, r := range regions {
		if err := ga.AddRegion(r.Ref, r); err != nil {
			return err
		}
	}

	attrs, err := readAttributes(globalDefFilePath(dir, "attributes.dat"))
	if err != nil {
		return err
	}
	for _, a := range attrs {
		if err := ga.AddAttribute(a.Ref, a); err != nil {
			return err
		}
	}

	groups, err := readGroups(globalDefFilePath(dir, "groups.dat"))
	if err != nil {
		return err
	}
	for _, g := range groups {
		if err := ga.AddGroup(g.Ref, g); err != nil {
			return err
		}
	}

	comms, err := readComms(globalDefFilePath(dir, "comms.dat"))
	if err != nil {
		return err
	}
	for _, c := range comms {
		if err := ga.AddComm(c.Ref, c); err != nil {
			return err
		}
	}

	groupDefs, err := readLocationGroups(globalDefFilePath(dir, "location_groups.dat"))
	if err != nil {
		return err
	}
	for _, lg := range groupDefs {
		if err := ga.DefineLocationGroup(lg.ID, lg.Name, lg.Parent, lg.HasParent); err != nil {
			return err
		}
	}

	locs, err := readLocations(globalDefFilePath(dir, "locations.dat"))
	if err != nil {
		return err
	}
	for _, l := range locs {
		if err := ga.DefineLocation(l.ID, l.Name, l.ParentID); err != nil {
			return err
		}
	}

	return nil
}

// writeArchiveDefs serializes a's five process-local definition tables
// under dir (archive_<id>/).
func writeArchiveDefs(a *archive.Archive, dir string) error {
	if err := writeStrings(archiveDefFilePath(dir, a.GroupID, "string.dat"), a.Strings()); err != nil {
		return err
	}
	if err := writeRegions(archiveDefFilePath(dir, a.GroupID, "regions.dat"), a.Regions()); err != nil {
		return err
	}
	if err := writeAttributes(archiveDefFilePath(dir, a.GroupID, "attributes.dat"), a.Attributes()); err != nil {
		return err
	}
	if err := writeGroups(archiveDefFilePath(dir, a.GroupID, "groups.dat"), a.Groups()); err != nil {
		return err
	}

	return writeComms(archiveDefFilePath(dir, a.GroupID, "comms.dat"), a.Comms())
}

func readArchiveDefs(a *archive.Archive, dir string, groupID uint32) error {
	strs, err := readStrings(archiveDefFilePath(dir, groupID, "string.dat"))
	if err != nil {
		return err
	}
	for _, s := range strs {
		if err := a.AddString(s.Ref, s.Value); err != nil {
			return err
		}
	}

	regions, err := readRegions(archiveDefFilePath(dir, groupID, "regions.dat"))
	if err != nil {
		return err
	}
	for _, r := range regions {
		if err := a.AddRegion(r.Ref, r); err != nil {
			return err
		}
	}

	attrs, err := readAttributes(archiveDefFilePath(dir, groupID, "attributes.dat"))
	if err != nil {
		return err
	}
	for _, at := range attrs {
		if err := a.AddAttribute(at.Ref, at); err != nil {
			return err
		}
	}

	groups, err := readGroups(archiveDefFilePath(dir, groupID, "groups.dat"))
	if err != nil {
		return err
	}
	for _, g := range groups {
		if err := a.AddGroup(g.Ref, g); err != nil {
			return err
		}
	}

	comms, err := readComms(archiveDefFilePath(dir, groupID, "comms.dat"))
	if err != nil {
		return err
	}
	for _, c := range comms {
		if err := a.AddComm(c.Ref, c); err != nil {
			return err
		}
	}

	return nil
}

// The remainder of this file is plain binary encode/decode for each
// definition shape: a little-endian uint32 record count, then each record
// back-to-back. Strings are length-prefixed; every other table's records
// are a handful of fixed uint32/bool/byte fields plus whatever
// length-prefixed strings the definition has (none for regions, two for
// attributes, one for the rest).

func writeStrings(path string, defs []archive.StringDef) error {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(defs)))
	for _, d := range defs {
		putU32(&buf, uint32(d.Ref))
		putString(&buf, d.Value)
	}

	return writeFile(path, buf.Bytes())
}

func readStrings(path string) ([]archive.StringDef, error) {
	r, n, err := openDefReader(path)
	if err != nil || r == nil {
		return nil, err
	}

	out := make([]archive.StringDef, 0, n)
	for i := uint32(0); i < n; i++ {
		ref, err := getU32(r)
		if err != nil {
			return nil, err
		}
		s, err := getString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, archive.StringDef{Ref: archive.Ref(ref), Value: s})
	}

	return out, nil
}

func writeRegions(path string, defs []archive.Region) error {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(defs)))
	for _, d := range defs {
		putU32(&buf, uint32(d.Ref))
		putU32(&buf, uint32(d.StringRef))
	}

	return writeFile(path, buf.Bytes())
}

func readRegions(path string) ([]archive.Region, error) {
	r, n, err := openDefReader(path)
	if err != nil || r == nil {
		return nil, err
	}

	out := make([]archive.Region, 0, n)
	for i := uint32(0); i < n; i++ {
		ref, err := getU32(r)
		if err != nil {
			return nil, err
		}
		sref, err := getU32(r)
		if err != nil {
			return nil, err
		}
		out = append(out, archive.Region{Ref: archive.Ref(ref), StringRef: archive.Ref(sref)})
	}

	return out, nil
}

func writeAttributes(path string, defs []archive.Attribute) error {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(defs)))
	for _, d := range defs {
		putU32(&buf, uint32(d.Ref))
		putString(&buf, d.Name)
		putString(&buf, d.Description)
		buf.WriteByte(byte(d.Type))
	}

	return writeFile(path, buf.Bytes())
}

func readAttributes(path string) ([]archive.Attribute, error) {
	r, n, err := openDefReader(path)
	if err != nil || r == nil {
		return nil, err
	}

	out := make([]archive.Attribute, 0, n)
	for i := uint32(0); i < n; i++ {
		ref, err := getU32(r)
		if err != nil {
			return nil, err
		}
		name, err := getString(r)
		if err != nil {
			return nil, err
		}
		desc, err := getString(r)
		if err != nil {
			return nil, err
		}
		var typ [1]byte
		if _, err := io.ReadFull(r, typ[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
		}
		out = append(out, archive.Attribute{Ref: archive.Ref(ref), Name: name, Description: desc, Type: archive.AttributeType(typ[0])})
	}

	return out, nil
}

func writeGroups(path string, defs []archive.Group) error {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(defs)))
	for _, d := range defs {
		putU32(&buf, uint32(d.Ref))
		putString(&buf, d.Name)
		putU32(&buf, uint32(len(d.Members)))
		for _, m := range d.Members {
			putU32(&buf, uint32(m))
		}
	}

	return writeFile(path, buf.Bytes())
}

func readGroups(path string) ([]archive.Group, error) {
	r, n, err := openDefReader(path)
	if err != nil || r == nil {
		return nil, err
	}

	out := make([]archive.Group, 0, n)
	for i := uint32(0); i < n; i++ {
		ref, err := getU32(r)
		if err != nil {
			return nil, err
		}
		name, err := getString(r)
		if err != nil {
			return nil, err
		}
		nm, err := getU32(r)
		if err != nil {
			return nil, err
		}
		members := make([]archive.Ref, nm)
		for j := range members {
			v, err := getU32(r)
			if err != nil {
				return nil, err
			}
			members[j] = archive.Ref(v)
		}
		out = append(out, archive.Group{Ref: archive.Ref(ref), Name: name, Members: members})
	}

	return out, nil
}

func writeComms(path string, defs []archive.Comm) error {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(defs)))
	for _, d := range defs {
		putU32(&buf, uint32(d.Ref))
		putString(&buf, d.Name)
		putU32(&buf, uint32(d.Group))
		putU32(&buf, uint32(d.Parent))
	}

	return writeFile(path, buf.Bytes())
}

func readComms(path string) ([]archive.Comm, error) {
	r, n, err := openDefReader(path)
	if err != nil || r == nil {
		return nil, err
	}

	out := make([]archive.Comm, 0, n)
	for i := uint32(0); i < n; i++ {
		ref, err := getU32(r)
		if err != nil {
			return nil, err
		}
		name, err := getString(r)
		if err != nil {
			return nil, err
		}
		group, err := getU32(r)
		if err != nil {
			return nil, err
		}
		parent, err := getU32(r)
		if err != nil {
			return nil, err
		}
		out = append(out, archive.Comm{Ref: archive.Ref(ref), Name: name, Group: archive.Ref(group), Parent: archive.Ref(parent)})
	}

	return out, nil
}

func writeLocationGroups(path string, defs []archive.LocationGroup) error {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(defs)))
	for _, d := range defs {
		putU32(&buf, uint32(d.ID))
		putString(&buf, d.Name)
		putU32(&buf, uint32(d.Parent))
		buf.WriteByte(boolByte(d.HasParent))
		putU32(&buf, uint32(d.MainLocation))
		buf.WriteByte(boolByte(d.HasMain))
	}

	return writeFile(path, buf.Bytes())
}

func readLocationGroups(path string) ([]archive.LocationGroup, error) {
	r, n, err := openDefReader(path)
	if err != nil || r == nil {
		return nil, err
	}

	out := make([]archive.LocationGroup, 0, n)
	for i := uint32(0); i < n; i++ {
		id, err := getU32(r)
		if err != nil {
			return nil, err
		}
		name, err := getString(r)
		if err != nil {
			return nil, err
		}
		parent, err := getU32(r)
		if err != nil {
			return nil, err
		}
		var hasParent [1]byte
		if _, err := io.ReadFull(r, hasParent[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
		}
		main, err := getU32(r)
		if err != nil {
			return nil, err
		}
		var hasMain [1]byte
		if _, err := io.ReadFull(r, hasMain[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
		}
		out = append(out, archive.LocationGroup{
			ID: archive.LocationID(id), Name: name,
			Parent: archive.LocationID(parent), HasParent: hasParent[0] != 0,
			MainLocation: archive.LocationID(main), HasMain: hasMain[0] != 0,
		})
	}

	return out, nil
}

func writeLocations(path string, defs []archive.Location) error {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(defs)))
	for _, d := range defs {
		putU32(&buf, uint32(d.ID))
		putString(&buf, d.Name)
		putU32(&buf, uint32(d.ParentID))
	}

	return writeFile(path, buf.Bytes())
}

func readLocations(path string) ([]archive.Location, error) {
	r, n, err := openDefReader(path)
	if err != nil || r == nil {
		return nil, err
	}

	out := make([]archive.Location, 0, n)
	for i := uint32(0); i < n; i++ {
		id, err := getU32(r)
		if err != nil {
			return nil, err
		}
		name, err := getString(r)
		if err != nil {
			return nil, err
		}
		parent, err := getU32(r)
		if err != nil {
			return nil, err
		}
		out = append(out, archive.Location{ID: archive.LocationID(id), Name: name, ParentID: archive.LocationID(parent)})
	}

	return out, nil
}

func openDefReader(path string) (*bytes.Reader, uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}

	r := bytes.NewReader(data)
	n, err := getU32(r)
	if err != nil {
		return nil, 0, err
	}

	return r, n, nil
}

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func getU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}

	return binary.LittleEndian.Uint32(b[:]), nil
}

func putString(buf *bytes.Buffer, s string) {
	putU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func getString(r *bytes.Reader) (string, error) {
	n, err := getU32(r)
	if err != nil {
		return "", err
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}

	return string(b), nil
}
