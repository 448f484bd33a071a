package protocol

import "testing"

func TestValidate_Samples(t *testing.T) {
	cases := []struct {
		name string
		typ  string
		raw  string
		ok   bool
	}{
		{"hello", TypeHello, `{"type":"HELLO","protocol_version":"1.0","client_name":"bpctl"}`, true},
		{"hello missing version", TypeHello, `{"type":"HELLO"}`, false},
		{"place", TypePlace, `{"type":"PLACE","protocol_version":"1.0","req_id":"r1","blueprint":"village/house","anchor":[0,64,0],"rotation":"cw_90","seed":7,"clip":{"min":[0,0,0],"max":[8,8,8]}}`, true},
		{"place bad rotation", TypePlace, `{"type":"PLACE","protocol_version":"1.0","req_id":"r1","blueprint":"b","anchor":[0,64,0],"rotation":"cw_45"}`, false},
		{"place short anchor", TypePlace, `{"type":"PLACE","protocol_version":"1.0","req_id":"r1","blueprint":"b","anchor":[0,64]}`, false},
		{"place bad flag", TypePlace, `{"type":"PLACE","protocol_version":"1.0","req_id":"r1","blueprint":"b","anchor":[0,64,0],"flags":["explode"]}`, false},
		{"filter", TypeFilter, `{"type":"FILTER","protocol_version":"1.0","req_id":"r2","blueprint":"b","block":"minecraft:chest","anchor":[1,2,3],"transformed":true}`, true},
		{"filter no block", TypeFilter, `{"type":"FILTER","protocol_version":"1.0","req_id":"r2","blueprint":"b","anchor":[1,2,3]}`, false},
		{"scan", TypeScan, `{"type":"SCAN","protocol_version":"1.0","req_id":"r3","box":{"min":[0,60,0],"max":[15,70,15]}}`, true},
		{"scan no box", TypeScan, `{"type":"SCAN","protocol_version":"1.0","req_id":"r3"}`, false},
		{"list", TypeList, `{"type":"LIST","protocol_version":"1.0","req_id":"r4"}`, true},
		{"unknown type", "ACT", `{"type":"ACT"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.typ, []byte(tc.raw))
			if tc.ok && err != nil {
				t.Fatalf("expected valid: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
