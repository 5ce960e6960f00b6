// File: cmd/mission_test.go
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverte/visor-cli/api/schemas"
)

func writeMission(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mission.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
	return path
}

func TestLoadMission(t *testing.T) {
	t.Run("parses a full mission", func(t *testing.T) {
		path := writeMission(t, `{
			"name": "bracket",
			"operations": [
				{
					"operation": "create_pad",
					"target": {"kind": "call", "params": {"profile": "Sketch.1", "length": 25}}
				},
				{
					"id": "click-ok",
					"operation": "confirm_dialog",
					"modality": "visual",
					"target": {"kind": "element", "label": "ok_button", "hint": {"x": 800, "y": 400}}
				},
				{
					"operation": "click_toolbar",
					"target": {"kind": "point", "point": {"x": 500, "y": 40}},
					"expected": {"kind": "element_appears", "label": "dialog"}
				}
			]
		}`)

		mission, err := LoadMission(path)
		require.NoError(t, err)
		assert.Equal(t, "bracket", mission.Name)

		reqs, err := mission.Requests()
		require.NoError(t, err)
		require.Len(t, reqs, 3)

		call, ok := reqs[0].Target.(schemas.CallTarget)
		require.True(t, ok)
		assert.JSONEq(t, `{"profile": "Sketch.1", "length": 25}`, string(call.Params))
		assert.Nil(t, reqs[0].ModalityHint)

		elem, ok := reqs[1].Target.(schemas.ElementTarget)
		require.True(t, ok)
		assert.Equal(t, "ok_button", elem.Label)
		require.NotNil(t, elem.Hint)
		assert.Equal(t, schemas.ImagePoint{X: 800, Y: 400}, *elem.Hint)
		assert.Equal(t, "click-ok", reqs[1].ID)
		require.NotNil(t, reqs[1].ModalityHint)
		assert.Equal(t, schemas.ModalityVisual, *reqs[1].ModalityHint)

		point, ok := reqs[2].Target.(schemas.PointTarget)
		require.True(t, ok)
		assert.Equal(t, schemas.Point{X: 500, Y: 40}, point.Point)
		require.NotNil(t, reqs[2].Expected)
		assert.Equal(t, schemas.EffectElementAppears, reqs[2].Expected.Kind)
	})

	t.Run("a missing target defaults to a bare structured call", func(t *testing.T) {
		path := writeMission(t, `{"operations": [{"operation": "save_part"}]}`)
		mission, err := LoadMission(path)
		require.NoError(t, err)

		reqs, err := mission.Requests()
		require.NoError(t, err)
		_, ok := reqs[0].Target.(schemas.CallTarget)
		assert.True(t, ok)
	})

	t.Run("rejects an empty mission", func(t *testing.T) {
		path := writeMission(t, `{"operations": []}`)
		_, err := LoadMission(path)
		assert.Error(t, err)
	})

	t.Run("rejects a missing file", func(t *testing.T) {
		_, err := LoadMission(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
}

func TestMissionRequests(t *testing.T) {
	t.Run("rejects an operation without a name", func(t *testing.T) {
		m := &Mission{Operations: []missionAction{{}}}
		_, err := m.Requests()
		assert.Error(t, err)
	})

	t.Run("rejects an unknown modality", func(t *testing.T) {
		m := &Mission{Operations: []missionAction{{Operation: "save_part", Modality: "psychic"}}}
		_, err := m.Requests()
		assert.Error(t, err)
	})

	t.Run("rejects malformed targets", func(t *testing.T) {
		for _, target := range []string{
			`{"kind": "teleport"}`,
			`{"kind": "point"}`,
			`{"kind": "element"}`,
			`[1, 2, 3]`,
		} {
			m := &Mission{Operations: []missionAction{{
				Operation: "click_button",
				Target:    []byte(target),
			}}}
			_, err := m.Requests()
			assert.Error(t, err, "target %s", target)
		}
	})
}
