package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusfix/backend/internal/models"
)

func TestReadTechniciansCSV(t *testing.T) {
	csv := "\ufeffID,Full Name,Skill,Capacity,Available\n" +
		"T-1,Aida,Electricity,2,true\n" +
		",Bolat,water,,\n" +
		"T-3,,it,1,true\n" +
		"T-4,Dana,roofing,1,true\n" +
		"T-5,Erlan,garbage,-1,true\n" +
		"T-6,Farida,hostel,4,no\n"

	techs, errs := readTechnicians(strings.NewReader(csv))

	require.Len(t, techs, 3)
	assert.Equal(t, "T-1", techs[0].ID)
	assert.Equal(t, models.CategoryElectricity, techs[0].Specialization)
	assert.Equal(t, 2, techs[0].MaxConcurrent)
	assert.True(t, techs[0].Active)

	assert.Equal(t, "TECH-002", techs[1].ID)
	assert.Equal(t, defaultMaxConcurrent, techs[1].MaxConcurrent)
	assert.True(t, techs[1].Available)

	assert.Equal(t, "T-6", techs[2].ID)
	assert.True(t, techs[2].Available, "unparseable flag keeps the default")

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "line 4: name required")
	assert.Contains(t, errs[1], "unknown specialization")
	assert.Contains(t, errs[2], "bad max_concurrent")
}

func TestValidateExt(t *testing.T) {
	assert.True(t, validateExt("roster.CSV"))
	assert.False(t, validateExt("roster.xlsx"))
}
