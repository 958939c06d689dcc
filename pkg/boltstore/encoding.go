package boltstore

import (
	"bytes"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/quest"
)

// encodeEntity serializes an entity and its behavior.
func encodeEntity(e *gamedb.Entity) ([]byte, error) {
	var buf bytes.Buffer
	if err := attach.EncodeEntity(codec.NewBinaryWriter(&buf), e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeAttachment serializes an attachment with its type and owner.
func encodeAttachment(a attach.Attachment) ([]byte, error) {
	var buf bytes.Buffer
	if err := attach.EncodeAttachment(codec.NewBinaryWriter(&buf), a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func reader(v []byte) codec.Reader {
	return codec.NewBinaryReader(bytes.NewReader(v))
}

// LeaderRow is one saved line of the quest ranking.
type LeaderRow struct {
	Rank      int
	DeltaRank int
	Quester   gamedb.DBRef
	Name      string
	Points    int
	Completed int
}

var leaderSchema = codec.NewSchema("leader", codec.Ascending,
	codec.Group[LeaderRow]{
		Since: 0,
		Write: func(w codec.Writer, r *LeaderRow) {
			w.WriteInt(r.Rank)
			w.WriteInt(r.DeltaRank)
			w.WriteRef(r.Quester)
			w.WriteString(r.Name)
			w.WriteInt(r.Points)
			w.WriteInt(r.Completed)
		},
		Read: func(d *codec.Decoder, r *LeaderRow) {
			r.Rank = d.ReadInt()
			r.DeltaRank = d.ReadInt()
			r.Quester = d.ReadRef()
			r.Name = d.ReadString()
			r.Points = d.ReadInt()
			r.Completed = d.ReadInt()
		},
	},
)

func rowOf(s quest.Standing) LeaderRow {
	ref := gamedb.Nothing
	if s.Quester != nil {
		ref = s.Quester.Serial
	}
	return LeaderRow{Rank: s.Rank, DeltaRank: s.DeltaRank, Quester: ref, Name: s.Name, Points: s.Points, Completed: s.Completed}
}

func encodeLeader(r LeaderRow) ([]byte, error) {
	var buf bytes.Buffer
	if err := leaderSchema.Encode(codec.NewBinaryWriter(&buf), &r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeLeader(v []byte) (LeaderRow, error) {
	var r LeaderRow
	err := leaderSchema.Decode(codec.NewDecoder(reader(v), nil), &r)
	return r, err
}
