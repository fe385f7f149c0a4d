package main

import (
	"fmt"
	"net/url"

	"github.com/pulumi/pulumi-gcp/sdk/v7/go/gcp/artifactregistry"
	"github.com/pulumi/pulumi-gcp/sdk/v7/go/gcp/compute"
	"github.com/pulumi/pulumi-gcp/sdk/v7/go/gcp/firestore"
	"github.com/pulumi/pulumi-gcp/sdk/v7/go/gcp/projects"
	"github.com/pulumi/pulumi-gcp/sdk/v7/go/gcp/serviceaccount"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		// Configuration
		cfg := config.New(ctx, "gatekeeper-infra")
		gcpCfg := config.New(ctx, "gcp")

		env := cfg.Require("environment")
		machineType := cfg.Get("machineType")
		if machineType == "" {
			machineType = "e2-micro"
		}
		rootDomain := cfg.Require("rootDomain")
		hubURL := cfg.Require("hubUrl")
		adminURL := cfg.Require("adminUrl")
		userURL := cfg.Require("userUrl")

		hub, err := url.Parse(hubURL)
		if err != nil || hub.Host == "" {
			return fmt.Errorf("hubUrl is not an absolute URL: %q", hubURL)
		}

		project := gcpCfg.Require("project")
		region := gcpCfg.Get("region")
		if region == "" {
			region = "us-west1"
		}
		zone := gcpCfg.Get("zone")
		if zone == "" {
			zone = "us-west1-b"
		}

		namePrefix := fmt.Sprintf("gatekeeper-%s", env)

		// Only prod runs with production cookie policy (localhost redirects refused)
		appEnv := "development"
		if env == "prod" {
			appEnv = "production"
		}

		// =================================================================
		// Enable Required GCP APIs
		// =================================================================
		apis := map[string]string{
			"compute":          "compute.googleapis.com",
			"artifactregistry": "artifactregistry.googleapis.com",
			"firestore":        "firestore.googleapis.com",
			"iam":              "iam.googleapis.com",
			"iamcredentials":   "iamcredentials.googleapis.com",
			"identitytoolkit":  "identitytoolkit.googleapis.com",
		}

		enabledAPIs := make([]*projects.Service, 0, len(apis))
		for name, api := range apis {
			svc, err := projects.NewService(ctx, fmt.Sprintf("%s-enable-%s-api", namePrefix, name), &projects.ServiceArgs{
				Service:                  pulumi.String(api),
				DisableDependentServices: pulumi.Bool(false),
				DisableOnDestroy:         pulumi.Bool(false),
			})
			if err != nil {
				return err
			}
			enabledAPIs = append(enabledAPIs, svc)
		}

		apiDeps := make([]pulumi.Resource, len(enabledAPIs))
		for i, api := range enabledAPIs {
			apiDeps[i] = api
		}

		// =================================================================
		// Artifact Registry
		// =================================================================
		_, err = artifactregistry.NewRepository(ctx, fmt.Sprintf("%s-registry", namePrefix), &artifactregistry.RepositoryArgs{
			RepositoryId: pulumi.String("gatekeeper"),
			Location:     pulumi.String(region),
			Format:       pulumi.String("DOCKER"),
			Description:  pulumi.String("Docker images for the auth hub"),
		}, pulumi.DependsOn(apiDeps))
		if err != nil {
			return err
		}

		// =================================================================
		// Firestore Database: principals and relay bundles
		// =================================================================
		dbName := fmt.Sprintf("gatekeeper-%s", env)
		firestoreDB, err := firestore.NewDatabase(ctx, fmt.Sprintf("%s-firestore", namePrefix), &firestore.DatabaseArgs{
			Name:                     pulumi.String(dbName),
			LocationId:               pulumi.String(region),
			Type:                     pulumi.String("FIRESTORE_NATIVE"),
			ConcurrencyMode:          pulumi.String("PESSIMISTIC"),
			AppEngineIntegrationMode: pulumi.String("DISABLED"),
		}, pulumi.DependsOn(apiDeps))
		if err != nil {
			return err
		}

		// Relay bundles carry an expiresAt timestamp; let Firestore reap
		// the ones nobody consumed.
		_, err = firestore.NewField(ctx, fmt.Sprintf("%s-relay-ttl", namePrefix), &firestore.FieldArgs{
			Project:    pulumi.String(project),
			Database:   firestoreDB.Name,
			Collection: pulumi.String("crossDomainAuth"),
			Field:      pulumi.String("expiresAt"),
			TtlConfig:  &firestore.FieldTtlConfigArgs{},
		})
		if err != nil {
			return err
		}

		// =================================================================
		// Service Account
		// =================================================================
		saName := fmt.Sprintf("gatekeeper-%s-hub", env)
		serviceAccount, err := serviceaccount.NewAccount(ctx, fmt.Sprintf("%s-sa", namePrefix), &serviceaccount.AccountArgs{
			AccountId:   pulumi.String(saName),
			DisplayName: pulumi.String(fmt.Sprintf("Gatekeeper %s Hub Service Account", env)),
			Description: pulumi.String("Service account for the auth hub instance"),
		}, pulumi.DependsOn(apiDeps))
		if err != nil {
			return err
		}

		iamRoles := []struct {
			name string
			role string
		}{
			{"artifact-registry-reader", "roles/artifactregistry.reader"},
			{"firestore-user", "roles/datastore.user"},
			{"logging-writer", "roles/logging.logWriter"},
			// session cookies and revocation
			{"firebase-auth-admin", "roles/firebaseauth.admin"},
			// custom token signing without a key file
			{"token-creator", "roles/iam.serviceAccountTokenCreator"},
		}

		iamBindings := make([]pulumi.Resource, 0, len(iamRoles))
		for _, r := range iamRoles {
			binding, err := projects.NewIAMMember(ctx, fmt.Sprintf("%s-sa-%s", namePrefix, r.name), &projects.IAMMemberArgs{
				Project: pulumi.String(project),
				Role:    pulumi.String(r.role),
				Member:  pulumi.Sprintf("serviceAccount:%s", serviceAccount.Email),
			})
			if err != nil {
				return err
			}
			iamBindings = append(iamBindings, binding)
		}

		// =================================================================
		// Network
		// =================================================================
		network, err := compute.NewNetwork(ctx, fmt.Sprintf("%s-network", namePrefix), &compute.NetworkArgs{
			AutoCreateSubnetworks: pulumi.Bool(false),
			Description:           pulumi.String("VPC network for the auth hub"),
		}, pulumi.DependsOn(apiDeps))
		if err != nil {
			return err
		}

		subnet, err := compute.NewSubnetwork(ctx, fmt.Sprintf("%s-subnet", namePrefix), &compute.SubnetworkArgs{
			IpCidrRange: pulumi.String("10.10.0.0/24"),
			Region:      pulumi.String(region),
			Network:     network.ID(),
			Description: pulumi.String("Subnet for auth hub instances"),
		})
		if err != nil {
			return err
		}

		firewalls := []struct {
			name        string
			ports       []string
			sources     []string
			description string
		}{
			{"allow-https", []string{"80", "443"}, []string{"0.0.0.0/0"}, "Allow HTTP/HTTPS traffic to the auth hub"},
			// IAP's IP range
			{"allow-iap-ssh", []string{"22"}, []string{"35.235.240.0/20"}, "Allow SSH via IAP to the auth hub"},
			// GCP health check ranges
			{"allow-health-check", []string{"8080"}, []string{"130.211.0.0/22", "35.191.0.0/16"}, "Allow health checks from GCP"},
		}
		for _, fw := range firewalls {
			ports := pulumi.StringArray{}
			for _, p := range fw.ports {
				ports = append(ports, pulumi.String(p))
			}
			sources := pulumi.StringArray{}
			for _, s := range fw.sources {
				sources = append(sources, pulumi.String(s))
			}
			_, err = compute.NewFirewall(ctx, fmt.Sprintf("%s-%s", namePrefix, fw.name), &compute.FirewallArgs{
				Network: network.Name,
				Allows: compute.FirewallAllowArray{
					&compute.FirewallAllowArgs{
						Protocol: pulumi.String("tcp"),
						Ports:    ports,
					},
				},
				SourceRanges: sources,
				TargetTags:   pulumi.StringArray{pulumi.String("gatekeeper-hub")},
				Description:  pulumi.String(fw.description),
			})
			if err != nil {
				return err
			}
		}

		staticIP, err := compute.NewAddress(ctx, fmt.Sprintf("%s-ip", namePrefix), &compute.AddressArgs{
			Region:      pulumi.String(region),
			AddressType: pulumi.String("EXTERNAL"),
			Description: pulumi.String("Static IP for the auth hub"),
		})
		if err != nil {
			return err
		}

		router, err := compute.NewRouter(ctx, fmt.Sprintf("%s-router", namePrefix), &compute.RouterArgs{
			Network: network.ID(),
			Region:  pulumi.String(region),
		})
		if err != nil {
			return err
		}

		_, err = compute.NewRouterNat(ctx, fmt.Sprintf("%s-nat", namePrefix), &compute.RouterNatArgs{
			Router:                        router.Name,
			Region:                        pulumi.String(region),
			NatIpAllocateOption:           pulumi.String("AUTO_ONLY"),
			SourceSubnetworkIpRangesToNat: pulumi.String("ALL_SUBNETWORKS_ALL_IP_RANGES"),
		})
		if err != nil {
			return err
		}

		// =================================================================
		// Compute Engine Instance
		// =================================================================
		// Container-Optimized OS; settings come from instance metadata.
		// Sessions run in firebase mode so no shared secret lives on the host.
		startupScript := pulumi.Sprintf(`#!/bin/bash
set -e

export HOME=/home/chronos

get_metadata() {
  curl -sf "http://metadata.google.internal/computeMetadata/v1/instance/attributes/$1" -H "Metadata-Flavor: Google"
}

IMAGE=$(get_metadata "gatekeeper-image")
APP_ENV=$(get_metadata "gatekeeper-env")
PROJECT_ID=$(get_metadata "gatekeeper-project-id")
STORE_DATABASE=$(get_metadata "gatekeeper-store-database")
DOMAIN_ROOT=$(get_metadata "gatekeeper-domain-root")
HUB_URL=$(get_metadata "gatekeeper-hub-url")
ADMIN_URL=$(get_metadata "gatekeeper-admin-url")
USER_URL=$(get_metadata "gatekeeper-user-url")
HUB_HOST=$(get_metadata "gatekeeper-hub-host")

docker-credential-gcr configure-docker --registries=%s-docker.pkg.dev

docker pull ${IMAGE}

docker stop gatekeeper 2>/dev/null || true
docker rm gatekeeper 2>/dev/null || true
docker stop caddy 2>/dev/null || true
docker rm caddy 2>/dev/null || true

docker network create gatekeeper-net 2>/dev/null || true

docker run -d \
  --name gatekeeper \
  --restart=always \
  --network gatekeeper-net \
  -e GATEKEEPER_ENV=${APP_ENV} \
  -e GATEKEEPER_API_ADDR=:8080 \
  -e GATEKEEPER_AUTH_PROJECT_ID=${PROJECT_ID} \
  -e GATEKEEPER_STORE_PROJECT_ID=${PROJECT_ID} \
  -e GATEKEEPER_STORE_DATABASE=${STORE_DATABASE} \
  -e GATEKEEPER_SESSION_MODE=firebase \
  -e GATEKEEPER_DOMAIN_ROOT=${DOMAIN_ROOT} \
  -e GATEKEEPER_DOMAIN_HUB_URL=${HUB_URL} \
  -e GATEKEEPER_DOMAIN_ADMIN_URL=${ADMIN_URL} \
  -e GATEKEEPER_DOMAIN_USER_URL=${USER_URL} \
  -e GATEKEEPER_DOMAIN_CORS_ORIGINS=${ADMIN_URL},${USER_URL} \
  ${IMAGE} serve

docker run -d \
  --name caddy \
  --restart=always \
  --network gatekeeper-net \
  -p 80:80 \
  -p 443:443 \
  -v /home/chronos/caddy_data:/data \
  caddy caddy reverse-proxy --from ${HUB_HOST} --to gatekeeper:8080
`, region)

		instanceName := fmt.Sprintf("%s-instance", namePrefix)
		instance, err := compute.NewInstance(ctx, instanceName, &compute.InstanceArgs{
			Name:        pulumi.String(instanceName),
			MachineType: pulumi.String(machineType),
			Zone:        pulumi.String(zone),
			Tags:        pulumi.StringArray{pulumi.String("gatekeeper-hub")},
			BootDisk: &compute.InstanceBootDiskArgs{
				InitializeParams: &compute.InstanceBootDiskInitializeParamsArgs{
					Image: pulumi.String("cos-cloud/cos-stable"),
					Size:  pulumi.Int(10),
					Type:  pulumi.String("pd-standard"),
				},
			},
			NetworkInterfaces: compute.InstanceNetworkInterfaceArray{
				&compute.InstanceNetworkInterfaceArgs{
					Network:    network.ID(),
					Subnetwork: subnet.ID(),
					AccessConfigs: compute.InstanceNetworkInterfaceAccessConfigArray{
						&compute.InstanceNetworkInterfaceAccessConfigArgs{
							NatIp: staticIP.Address,
						},
					},
				},
			},
			ServiceAccount: &compute.InstanceServiceAccountArgs{
				Email: serviceAccount.Email,
				Scopes: pulumi.StringArray{
					pulumi.String("https://www.googleapis.com/auth/cloud-platform"),
				},
			},
			Metadata: pulumi.StringMap{
				"gatekeeper-image":          pulumi.Sprintf("%s-docker.pkg.dev/%s/gatekeeper/gatekeeper:latest", region, project),
				"gatekeeper-env":            pulumi.String(appEnv),
				"gatekeeper-project-id":     pulumi.String(project),
				"gatekeeper-store-database": pulumi.String(dbName),
				"gatekeeper-domain-root":    pulumi.String(rootDomain),
				"gatekeeper-hub-url":        pulumi.String(hubURL),
				"gatekeeper-admin-url":      pulumi.String(adminURL),
				"gatekeeper-user-url":       pulumi.String(userURL),
				"gatekeeper-hub-host":       pulumi.String(hub.Hostname()),
			},
			MetadataStartupScript:  startupScript,
			AllowStoppingForUpdate: pulumi.Bool(true),
			Description:            pulumi.String(fmt.Sprintf("Gatekeeper %s auth hub", env)),
		}, pulumi.DependsOn(iamBindings))
		if err != nil {
			return err
		}

		// =================================================================
		// Outputs
		// =================================================================
		ctx.Export("registryUrl", pulumi.Sprintf("%s-docker.pkg.dev/%s/gatekeeper", region, project))
		ctx.Export("instanceName", instance.Name)
		ctx.Export("instanceZone", pulumi.String(zone))
		ctx.Export("externalIp", staticIP.Address)
		ctx.Export("serviceAccountEmail", serviceAccount.Email)
		ctx.Export("firestoreDatabase", firestoreDB.Name)
		ctx.Export("hubUrl", pulumi.String(hubURL))

		ctx.Export("dockerPushCommand", pulumi.Sprintf(
			"docker push %s-docker.pkg.dev/%s/gatekeeper/gatekeeper:latest",
			region, project,
		))

		// Principals are provisioned out of band: gatekeeper seed --config principals.yaml
		ctx.Export("seedCommand", pulumi.Sprintf(
			"GATEKEEPER_STORE_PROJECT_ID=%s GATEKEEPER_STORE_DATABASE=%s gatekeeper seed --config principals.yaml",
			project, dbName,
		))

		ctx.Export("sshCommand", pulumi.Sprintf(
			"gcloud compute ssh %s --zone=%s --tunnel-through-iap",
			instance.Name, zone,
		))

		return nil
	})
}
