package network

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MalteJ/mvirt/pkg/models"
)

func int32p(v int32) *int32 { return &v }

func TestSgChainNamesAfterTap(t *testing.T) {
	assert.Equal(t, "mvirt-sg-mvirt3", sgChain("mvirt3"))
}

func TestIngressOnlyRequiresAllRulesIngress(t *testing.T) {
	ingress := &models.SecurityGroupRule{Direction: models.DirectionIngress}
	egress := &models.SecurityGroupRule{Direction: models.DirectionEgress}

	assert.True(t, ingressOnly([]*models.SecurityGroupRule{ingress}))
	assert.False(t, ingressOnly([]*models.SecurityGroupRule{ingress, egress}))
	assert.False(t, ingressOnly(nil))
}

func TestRuleArgsIngressMatchesIncomingTraffic(t *testing.T) {
	rule := &models.SecurityGroupRule{
		Direction: models.DirectionIngress,
		Protocol:  models.ProtocolTCP,
		CIDR:      "10.0.0.0/24",
		PortStart: int32p(22),
		PortEnd:   int32p(22),
	}

	args := ruleArgs("mvirt0", rule)
	assert.Equal(t, []string{
		"-o", "mvirt0",
		"-p", "tcp",
		"-s", "10.0.0.0/24",
		"--dport", "22",
		"-j", "ACCEPT",
	}, args)
}

func TestRuleArgsEgressMatchesOutgoingTraffic(t *testing.T) {
	rule := &models.SecurityGroupRule{
		Direction: models.DirectionEgress,
		Protocol:  models.ProtocolUDP,
		CIDR:      "0.0.0.0/0",
		PortStart: int32p(1000),
		PortEnd:   int32p(2000),
	}

	args := ruleArgs("mvirt1", rule)
	assert.Equal(t, []string{
		"-i", "mvirt1",
		"-p", "udp",
		"-d", "0.0.0.0/0",
		"--dport", "1000:2000",
		"-j", "ACCEPT",
	}, args)
}

func TestRuleArgsAllProtocolOmitsProtoFlag(t *testing.T) {
	rule := &models.SecurityGroupRule{
		Direction: models.DirectionIngress,
		Protocol:  models.ProtocolAll,
	}

	args := ruleArgs("mvirt2", rule)
	assert.Equal(t, []string{"-o", "mvirt2", "-j", "ACCEPT"}, args)
}
